// Package all registers every classifier backend.
package all

import (
	_ "github.com/inkwell-labs/scribble/lib/classifier/grpcmodel"
	_ "github.com/inkwell-labs/scribble/lib/classifier/local"
	_ "github.com/inkwell-labs/scribble/lib/classifier/remote"
)
