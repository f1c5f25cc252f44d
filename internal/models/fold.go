package models

import (
	"database/sql/driver"
	"fmt"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	moderncsqlite "modernc.org/sqlite"
)

// foldFunc is the SQL name of the Unicode lowercase function. SQLite's own
// LOWER() only folds ASCII, the trigram tokenizer folds all of Unicode.
const foldFunc = "homeflix_fold"

var (
	registerFold    sync.Once
	registerFoldErr error
)

// fold lowercases s the way the trigram tokenizer compares text
func fold(s string) string {
	// a Caser carries state, so one per call
	return cases.Lower(language.Und).String(s)
}

// ensureFoldFunc registers foldFunc with the driver. It must run before the
// first connection is opened.
func ensureFoldFunc() error {
	registerFold.Do(func() {
		registerFoldErr = moderncsqlite.RegisterDeterministicScalarFunction(foldFunc, 1,
			func(_ *moderncsqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				switch v := args[0].(type) {
				case nil:
					return nil, nil
				case string:
					return fold(v), nil
				case []byte:
					return fold(string(v)), nil
				default:
					return fmt.Sprint(v), nil
				}
			})
	})
	return registerFoldErr
}
