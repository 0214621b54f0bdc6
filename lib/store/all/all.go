// Package all is a meta-package that imports all store implementations.
//
// This is a HACK to make tests work consistently.
package all

import (
	_ "github.com/inkwell-labs/scribble/lib/store/badger"
	_ "github.com/inkwell-labs/scribble/lib/store/bbolt"
	_ "github.com/inkwell-labs/scribble/lib/store/memory"
	_ "github.com/inkwell-labs/scribble/lib/store/valkey"
)
