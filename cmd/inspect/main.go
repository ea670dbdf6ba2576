// inspect dumps raw store keys for debugging: job state, ledger entries
// and pending continuations. Run it against a stopped instance; pebble
// holds an exclusive lock.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"ingestd/pkg/state"
	"ingestd/pkg/store"
)

func main() {
	var data string
	var prefix string
	var values bool
	flag.StringVar(&data, "data", "./.ingestd", "data directory of the ingestd instance")
	flag.StringVar(&prefix, "prefix", "", "key prefix filter (e.g. led:, job:, sched:)")
	flag.BoolVar(&values, "values", false, "print values as well as keys")
	flag.Parse()

	if err := store.Open(state.StorePath(data)); err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	it, err := store.Iter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "iterate: %v\n", err)
		os.Exit(1)
	}
	defer it.Close()

	n := 0
	for ok := it.First(); ok; ok = it.Next() {
		k := string(it.Key())
		if prefix != "" && !strings.HasPrefix(k, prefix) {
			continue
		}
		if values {
			fmt.Printf("%s\t%s\n", k, string(it.Value()))
		} else {
			fmt.Println(k)
		}
		n++
	}
	fmt.Fprintf(os.Stderr, "%d key(s)\n", n)
}
