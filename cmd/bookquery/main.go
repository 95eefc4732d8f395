// Command bookquery is a command-line client for the book search pipeline.
//
// It shows how a query is rewritten for the provider, runs searches either
// in process against Google Books or through a running booksearch RPC
// listener, ranks volume lists read from JSON and load-tests a running
// service.
//
// Usage:
//
//	bookquery optimize the hobbit by tolkien
//	bookquery search --limit 5 dune
//	bookquery search --rpc-addr localhost:9000 978-0-261-10357-3
//	bookquery rank < volumes.json
//	bookquery bench --url http://localhost:8080 --duration 1m
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
