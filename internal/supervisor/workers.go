package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ResolveWorkerCount decides how many workers to run on a machine with cpus
// CPUs. A positive requested count is capped at cpus. Otherwise, when
// interactive, the operator is asked through in/out; without a terminal all
// CPUs are used.
func ResolveWorkerCount(requested, cpus int, in io.Reader, out io.Writer, interactive bool) (int, error) {
	if cpus < 1 {
		cpus = 1
	}
	if requested > 0 {
		return min(requested, cpus), nil
	}
	if !interactive {
		return cpus, nil
	}
	return promptWorkerCount(cpus, bufio.NewReader(in), out)
}

func promptWorkerCount(cpus int, in *bufio.Reader, out io.Writer) (int, error) {
	fmt.Fprintf(out, "Worker processes (%d CPUs available):\n", cpus)
	fmt.Fprintln(out, "  1) Use all cores (default)")
	fmt.Fprintln(out, "  2) Select number of cores")
	fmt.Fprintln(out, "  3) Use single core")

	for {
		fmt.Fprint(out, "Choice [1]: ")
		line, err := readLine(in)
		if err != nil {
			return 0, err
		}
		switch line {
		case "", "1":
			return cpus, nil
		case "3":
			return 1, nil
		case "2":
			return promptCoreNumber(cpus, in, out)
		}
		fmt.Fprintln(out, "Please enter 1, 2 or 3.")
	}
}

func promptCoreNumber(cpus int, in *bufio.Reader, out io.Writer) (int, error) {
	for {
		fmt.Fprintf(out, "Enter number of cores (1-%d): ", cpus)
		line, err := readLine(in)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(line)
		if err == nil && n >= 1 && n <= cpus {
			return n, nil
		}
		fmt.Fprintf(out, "Invalid input. Please enter a number between 1 and %d.\n", cpus)
	}
}

// readLine returns the next trimmed line. Input ending without a newline
// still yields its last line; EOF with nothing read is an error.
func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read worker count: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// PersistWorkerCount writes NUM_CORES=n into the env file at path, keeping
// the other keys.
func PersistWorkerCount(path string, n int) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", path, err)
		}
		env = map[string]string{}
	}
	env["NUM_CORES"] = strconv.Itoa(n)
	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
