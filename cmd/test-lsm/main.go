package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/lsm"
)

func main() {
	// Clean up
	os.RemoveAll("./data/test-lsm")

	fmt.Println("Opening engine...")
	opts := lsm.DefaultOptions("./data/test-lsm")
	opts.FlushThreshold = 4 // Very small for quick flushes
	opts.SegmentSize = 3
	opts.Logger = logging.DefaultLogger()

	engine, err := lsm.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open engine: %v", err)
	}

	// Write some data
	fmt.Println("Writing data...")
	for i := 0; i <= 10; i++ {
		key := strconv.Itoa(i)
		if err := engine.Set(key, key); err != nil {
			log.Fatalf("Failed to write: %v", err)
		}
		fmt.Printf("  Wrote %s = %s\n", key, key)
	}

	fmt.Println("\nReading back...")
	readAll(engine)

	fmt.Println("\nRemoving every key...")
	for i := 0; i <= 10; i++ {
		if err := engine.Remove(strconv.Itoa(i)); err != nil {
			log.Fatalf("Failed to remove: %v", err)
		}
	}
	readAll(engine)

	printStats(engine.Stats())

	fmt.Println("\nClosing engine...")
	if err := engine.Close(); err != nil {
		log.Fatalf("Failed to close: %v", err)
	}

	// Reopen
	fmt.Println("\nReopening engine...")
	engine2, err := lsm.Open(opts)
	if err != nil {
		log.Fatalf("Failed to reopen: %v", err)
	}
	defer engine2.Close()

	fmt.Println("\nReading after recovery...")
	readAll(engine2)
	printStats(engine2.Stats())

	fmt.Println("\n✅ Test complete!")
}

func readAll(engine *lsm.Engine) {
	for i := 0; i <= 10; i++ {
		key := strconv.Itoa(i)
		value, found, err := engine.Get(key)
		switch {
		case err != nil:
			log.Fatalf("Failed to read %s: %v", key, err)
		case found:
			fmt.Printf("  Read %s = %s ✓\n", key, value)
		default:
			fmt.Printf("  Read %s = NOT FOUND\n", key)
		}
	}
}

func printStats(s lsm.Stats) {
	fmt.Printf("\nEngine Statistics:\n")
	fmt.Printf("  Writes: %d\n", s.WriteCount)
	fmt.Printf("  Reads: %d\n", s.ReadCount)
	fmt.Printf("  Flushes: %d\n", s.FlushCount)
	fmt.Printf("  Tombstones cached: %d\n", s.TombstonesCached)
	fmt.Printf("  MemTable: %d keys, %d bytes\n", s.MemTableLen, s.MemTableBytes)
	fmt.Printf("  Tables: %d\n", s.TableCount)
}
