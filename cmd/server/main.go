package main

import (
	"github.com/OFFIS-RIT/lexgraph/backend/internal/server"
	"github.com/OFFIS-RIT/lexgraph/backend/internal/setup"
	"github.com/OFFIS-RIT/lexgraph/backend/internal/util"
)

func main() {
	util.LoadEnv()

	setup.Logger("server")

	server.Init()
}
