package main

import (
	"os"
	"runtime"

	"BoardKP/cmd"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())
	os.Exit(cmd.Execute())
}
