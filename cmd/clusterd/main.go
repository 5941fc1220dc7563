// Command clusterd runs a single node of the decentralized membership
// cluster.
package main

import "github.com/thirstycrow/atomix/internal/cli"

func main() {
	cli.Execute()
}
