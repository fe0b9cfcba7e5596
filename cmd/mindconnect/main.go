package main

import (
	"github.com/BioHazard786/mindconnect/internal/command"
	"github.com/BioHazard786/mindconnect/internal/logging"
)

func main() {
	logging.Init()
	command.Execute()
}
