package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mvandermade/poolkeeper/pkg/pool"
)

var (
	demoSize        int
	demoMaxOverflow int
	demoUppercase   bool
)

// demoCmd starts an echo (or uppercasing) worker pool, feeds it stdin lines
// as work, prints each reply, and shuts the pool down gracefully on
// SIGINT/SIGTERM or EOF.
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a worker pool that echoes lines read from stdin",
	RunE:  runDemo,
}

func init() {
	demoCmd.Flags().IntVar(&demoSize, "size", 3, "steady-state worker count")
	demoCmd.Flags().IntVar(&demoMaxOverflow, "max-overflow", 2, "additional workers allowed under load")
	demoCmd.Flags().BoolVar(&demoUppercase, "uppercase", false, "uppercase each line instead of echoing it")
}

type echoWorker struct {
	uppercase bool
}

func (w *echoWorker) Handle(ctx context.Context, msg string) (string, error) {
	if w.uppercase {
		return strings.ToUpper(msg), nil
	}
	return msg, nil
}

func runDemo(cmd *cobra.Command, args []string) error {
	log := logrus.StandardLogger()

	factory := func(ctx context.Context) (pool.Worker[string, string], error) {
		return &echoWorker{uppercase: demoUppercase}, nil
	}

	p, err := pool.New[string, string](factory,
		pool.WithName("poolctl-demo"),
		pool.WithSize(demoSize),
		pool.WithMaxOverflow(demoMaxOverflow),
		pool.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("starting pool: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			reply, err := p.Work(ctx, line, true)
			if err != nil {
				log.WithError(err).Error("work failed")
				continue
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
		case <-ctx.Done():
			break loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.Stop(shutdownCtx)
}
