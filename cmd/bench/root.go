package bench

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	cmdUtil "github.com/ValentinKolb/kvs/cmd/util"
	"github.com/ValentinKolb/kvs/lib/db"
	"github.com/ValentinKolb/kvs/lib/store"
	"github.com/ValentinKolb/kvs/lib/store/lstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// BenchCmd stresses a local store with overlapping multi-key operations
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Stress test of a local store",
		Long:    "Runs randomized multi-key WRITE, READ and DELETE commands with overlapping bucket sets from many goroutines. A watchdog aborts the run if no operation completes within --watchdog seconds (deadlock).",
		PreRunE: processBenchConfig,
		RunE:    run,
	}
	benchThreads   = 16
	benchKeys      = 1000
	benchBatchSize = 8
	benchWatchdog  = 10 * time.Second
	benchSkip      = make([]string, 0)
)

func init() {
	cmdUtil.SetupStoreFlags(BenchCmd)

	key := "threads"
	BenchCmd.Flags().Int(key, 16, cmdUtil.WrapString("Number of goroutines issuing operations"))
	key = "keys"
	BenchCmd.Flags().Int(key, 1000, cmdUtil.WrapString("How many different keys to use for the tests"))
	key = "batch"
	BenchCmd.Flags().Int(key, 8, cmdUtil.WrapString("Maximum number of keys per command"))
	key = "watchdog"
	BenchCmd.Flags().Int(key, 10, cmdUtil.WrapString("Seconds without any completed operation before the run is aborted"))
	key = "skip"
	BenchCmd.Flags().String(key, "", cmdUtil.WrapString("Benchmarks to skip (comma separated - e.g. write,show)"))
	key = "csv"
	BenchCmd.Flags().String(key, "", cmdUtil.WrapString("Optional path to save benchmark results as CSV"))
}

func processBenchConfig(_ *cobra.Command, _ []string) error {
	benchThreads = viper.GetInt("threads")
	benchKeys = viper.GetInt("keys")
	benchBatchSize = viper.GetInt("batch")
	benchWatchdog = time.Duration(viper.GetInt("watchdog")) * time.Second
	if s := viper.GetString("skip"); s != "" {
		benchSkip = strings.Split(s, ",")
	}

	if benchThreads < 1 || benchKeys < 1 || benchBatchSize < 1 || benchWatchdog <= 0 {
		return fmt.Errorf("threads, keys, batch and watchdog must be positive")
	}
	return nil
}

// bench is a single named benchmark
type bench struct {
	name string
	op   func(st store.IStore, rnd *rand.Rand)
}

func run(_ *cobra.Command, _ []string) error {
	config := cmdUtil.GetStoreConfig()
	st, err := lstore.NewLocalStore(config)
	if err != nil {
		return err
	}

	fmt.Println("Stress test of a local kvs store")
	fmt.Println(config.String())
	fmt.Printf("Threads: %d, Keys: %d, Batch: %d\n\n", benchThreads, benchKeys, benchBatchSize)

	keys := make([]string, benchKeys)
	for i := range keys {
		// spread over all letter buckets
		keys[i] = fmt.Sprintf("%c%d", 'a'+rune(i%db.TableSize), i)
	}
	pick := func(rnd *rand.Rand) []string {
		batch := make([]string, 1+rnd.Intn(benchBatchSize))
		for i := range batch {
			batch[i] = keys[rnd.Intn(len(keys))]
		}
		return batch
	}

	benches := []bench{
		{"write", func(st store.IStore, rnd *rand.Rand) {
			batch := pick(rnd)
			pairs := make([]db.Pair, len(batch))
			for i, k := range batch {
				pairs[i] = db.Pair{Key: k, Value: strconv.Itoa(rnd.Int())}
			}
			_, _ = st.Write(pairs)
		}},
		{"read", func(st store.IStore, rnd *rand.Rand) { _, _ = st.Read(pick(rnd)) }},
		{"delete", func(st store.IStore, rnd *rand.Rand) { _, _ = st.Delete(pick(rnd)) }},
		{"mixed", func(st store.IStore, rnd *rand.Rand) {
			switch rnd.Intn(10) {
			case 0:
				_, _ = st.Delete(pick(rnd))
			case 1, 2, 3:
				batch := pick(rnd)
				pairs := make([]db.Pair, len(batch))
				for i, k := range batch {
					pairs[i] = db.Pair{Key: k, Value: "x"}
				}
				_, _ = st.Write(pairs)
			default:
				_, _ = st.Read(pick(rnd))
			}
		}},
		{"show", func(st store.IStore, _ *rand.Rand) { _, _ = st.Show() }},
	}

	var progress atomic.Uint64
	results := make(map[string]testing.BenchmarkResult)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for _, b := range benches {
			if shouldSkip(b.name) {
				printResult(b.name, testing.BenchmarkResult{})
				continue
			}
			result := testing.Benchmark(func(tb *testing.B) {
				tb.SetParallelism(benchThreads)
				tb.RunParallel(func(pb *testing.PB) {
					rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
					for pb.Next() {
						b.op(st, rnd)
						progress.Add(1)
					}
				})
			})
			results[b.name] = result
			printResult(b.name, result)
		}
	}()

	// watchdog
	ticker := time.NewTicker(benchWatchdog)
	defer ticker.Stop()
	last := progress.Load()
loop:
	for {
		select {
		case <-done:
			break loop
		case <-ticker.C:
			current := progress.Load()
			if current == last {
				// the store is not closed, Close would wait for the stuck operations
				return fmt.Errorf("no operation completed within %s, possible deadlock", benchWatchdog)
			}
			last = current
		}
	}

	if err := st.Close(); err != nil {
		return err
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, config); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range benchSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config store.Config) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Threads", "Keys", "Batch", "HashFunction"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		nsPerOp := math.Max(float64(result.NsPerOp()), 1)
		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", 1.0/(nsPerOp/1e9)),
			strconv.Itoa(benchThreads),
			strconv.Itoa(benchKeys),
			strconv.Itoa(benchBatchSize),
			config.HashFunction,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
