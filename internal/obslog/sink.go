package obslog

import "os"

func zapStdout() *os.File { return os.Stdout }
