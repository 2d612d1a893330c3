// Command poolctl is a small demonstration CLI for pkg/pool: it runs an
// echo-style worker pool reading lines from stdin, submitting each as work,
// and printing the reply, until interrupted.
package main

import "github.com/mvandermade/poolkeeper/cmd/poolctl/cmd"

func main() {
	cmd.Execute()
}
