package monitor

import "github.com/forgelabs/fabric/pkg/sandbox"

// Monitor implements the Auditor interface pkg/sandbox declares for
// itself; this is the only point where the dependency direction between
// the two packages is asserted.
var _ sandbox.Auditor = (*Monitor)(nil)
