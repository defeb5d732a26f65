// Command motionsim runs a simulated motion-execution service speaking the
// goal protocol: each incoming goal is accepted or rejected against a
// workspace bound, executed after a configurable delay, and answered with a
// terminal result. Useful for running the tracker without real hardware and
// for exercising its error paths.
package main

import (
	"flag"
	"log"
	"net/http"
	"time"

	"visual-servo/internal/motion"
)

func main() {
	listenAddr := flag.String("listen", ":9090", "HTTP listen address")
	reach := flag.Float64("reach", 2.0, "Max |coordinate| accepted, in meters (0 = accept all)")
	delay := flag.Duration("delay", 100*time.Millisecond, "Simulated execution time per goal")
	failEvery := flag.Int("fail-every", 0, "Make every Nth executed goal fail (0 = never)")
	flag.Parse()

	sim := motion.NewSim(motion.SimConfig{
		Reach:     *reach,
		Delay:     *delay,
		FailEvery: *failEvery,
	})

	mux := http.NewServeMux()
	mux.Handle("/goals", motion.NewActionServer(sim))

	log.Printf("Motion simulator")
	log.Printf("  Listen: %s", *listenAddr)
	log.Printf("  Reach: %g m, delay: %s, fail-every: %d", *reach, *delay, *failEvery)

	if err := http.ListenAndServe(*listenAddr, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
