// Copyright © 2018 One Concern

package main

import (
	"github.com/oneconcern/collection-registry/cmd/registry/cmd"
)

func main() {
	cmd.Execute()
}
