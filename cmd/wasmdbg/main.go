// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command wasmdbg debugs WebAssembly modules, either interactively or as a
// gRPC debug server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wasmdbg/wasmdbg/repl"
	"github.com/wasmdbg/wasmdbg/server"
	"github.com/wasmdbg/wasmdbg/wasmdbg"
)

func main() {
	var (
		serve         = flag.Bool("serve", false, "run as a gRPC debug server instead of the interactive shell")
		configPath    = flag.String("config", "", "path to wasmdbg.yaml (default: search from the working directory upwards)")
		listenAddr    = flag.String("listen", "", "listen address for the debug server (overrides the config)")
		importHandler = flag.String("import-handler", "", "gRPC address of the import handler host process (overrides the config)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [module.wasm]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *serve {
		runServer(*configPath, *listenAddr, *importHandler)
		return
	}

	debugger := wasmdbg.NewDebugger(nil)
	if path := flag.Arg(0); path != "" {
		if err := debugger.LoadFile(path); err != nil {
			log.Fatalf("failed to load %s: %v", path, err)
		}
	}
	repl.Start(debugger)
}

func runServer(configPath, listenAddr, importHandler string) {
	cfg, err := resolveConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if importHandler != "" {
		cfg.ImportHandler.Target = importHandler
	}

	srv, err := server.NewServer(cfg, log.Default())
	if err != nil {
		log.Fatal(err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Println("shutting down")
		srv.Stop()
	}()

	if err := srv.Serve(); err != nil {
		log.Fatal(err)
	}
}

func resolveConfig(path string) (*server.Config, error) {
	if path != "" {
		return server.LoadConfig(path)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	found, err := server.FindConfig(cwd)
	if err != nil {
		return nil, err
	}
	if found == "" {
		return server.DefaultConfig(), nil
	}
	log.Printf("using config %s", found)
	return server.LoadConfig(found)
}
