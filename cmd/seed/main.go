// Command seed writes a synthetic transaction CSV for stress testing the
// engine. Kind probabilities skew heavily toward deposits and withdrawals,
// with a sprinkle of disputes referencing earlier deposits and a few that
// reference ids that never existed.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
)

const (
	probDeposit    = 0.49
	probWithdrawal = 0.49
	probDispute    = 0.005
	probResolve    = 0.004
	probChargeback = 0.001

	invalidDisputeTx    = 99_999_999
	invalidResolveTx    = 88_888_888
	invalidChargebackTx = 77_777_777
)

func main() {
	records := flag.Int("records", 1_000_000, "number of transactions to generate")
	clients := flag.Int("clients", 65535, "number of distinct clients")
	out := flag.String("out", "samples/stress_test.csv", "output path")
	seed := flag.Int64("seed", 42, "rng seed")
	flag.Parse()

	fmt.Fprintf(os.Stderr, "Generating %d transactions for %d clients in %s...\n", *records, *clients, *out)

	if dir := filepath.Dir(*out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("create output dir: %v", err)
		}
	}
	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	fmt.Fprintln(w, "type,client,tx,amount")

	rng := rand.New(rand.NewSource(*seed))
	deposits := make(map[int][]uint32, *clients)
	disputed := make(map[uint32]bool)
	nextTx := uint32(1)

	for i := 0; i < *records; i++ {
		client := rng.Intn(*clients)
		roll := rng.Float64()

		switch {
		case roll < probDeposit:
			amount := float64(rng.Intn(1_000_000)) / 100
			fmt.Fprintf(w, "deposit,%d,%d,%.2f\n", client, nextTx, amount)
			deposits[client] = append(deposits[client], nextTx)
			nextTx++

		case roll < probDeposit+probWithdrawal:
			amount := float64(rng.Intn(100_000)) / 100
			fmt.Fprintf(w, "withdrawal,%d,%d,%.2f\n", client, nextTx, amount)
			nextTx++

		case roll < probDeposit+probWithdrawal+probDispute:
			tx := pickDeposit(rng, deposits, client, invalidDisputeTx)
			fmt.Fprintf(w, "dispute,%d,%d,\n", client, tx)
			disputed[tx] = true

		case roll < probDeposit+probWithdrawal+probDispute+probResolve:
			tx := pickDisputed(rng, disputed, invalidResolveTx)
			fmt.Fprintf(w, "resolve,%d,%d,\n", client, tx)
			delete(disputed, tx)

		default:
			tx := pickDisputed(rng, disputed, invalidChargebackTx)
			fmt.Fprintf(w, "chargeback,%d,%d,\n", client, tx)
			delete(disputed, tx)
		}
	}
}

// pickDeposit returns one of the client's prior deposits, or the invalid
// sentinel id so the stream also exercises unknown-tx rejections.
func pickDeposit(rng *rand.Rand, deposits map[int][]uint32, client int, fallback uint32) uint32 {
	txs := deposits[client]
	if len(txs) == 0 || rng.Float64() < 0.1 {
		return fallback
	}
	return txs[rng.Intn(len(txs))]
}

func pickDisputed(rng *rand.Rand, disputed map[uint32]bool, fallback uint32) uint32 {
	if len(disputed) == 0 || rng.Float64() < 0.1 {
		return fallback
	}
	n := rng.Intn(len(disputed))
	for tx := range disputed {
		if n == 0 {
			return tx
		}
		n--
	}
	return fallback
}
