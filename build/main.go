// Command build runs the repository's development tasks.
//
//	go run ./build test
package main

import (
	"os"
	"os/exec"

	"github.com/goyek/goyek/v2"
)

func run(a *goyek.A, name string, args ...string) {
	a.Helper()
	a.Logf("%s %v", name, args)
	cmd := exec.CommandContext(a.Context(), name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		a.Error(err)
	}
}

var vet = goyek.Define(goyek.Task{
	Name:  "vet",
	Usage: "Run go vet on all packages",
	Action: func(a *goyek.A) {
		run(a, "go", "vet", "./...")
	},
})

var test = goyek.Define(goyek.Task{
	Name:  "test",
	Usage: "Run the unit tests with the race detector",
	Action: func(a *goyek.A) {
		run(a, "go", "test", "-race", "./...")
	},
})

// eval needs judge credentials in the environment.
var eval = goyek.Define(goyek.Task{
	Name:  "eval",
	Usage: "Run the evaluation suite against the placeholder agent",
	Action: func(a *goyek.A) {
		args := []string{"run", "./cmd/sqleval", "run", "--markdown", "evaluation_report.md"}
		if d := os.Getenv("EVAL_DIFFICULTY"); d != "" {
			args = append(args, "--difficulty", d)
		}
		run(a, "go", args...)
	},
})

var bench = goyek.Define(goyek.Task{
	Name:  "bench",
	Usage: "Time the agent over the corpus without judging",
	Action: func(a *goyek.A) {
		run(a, "go", "run", "./cmd/sqleval", "run", "--benchmark")
	},
})

var _ = goyek.Define(goyek.Task{
	Name:  "all",
	Usage: "vet and test",
	Deps:  goyek.Deps{vet, test},
})

func main() {
	goyek.SetDefault(test)
	goyek.Main(os.Args[1:])
}
