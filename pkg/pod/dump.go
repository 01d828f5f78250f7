// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pod

import "github.com/davecgh/go-spew/spew"

// DebugDump renders v for human inspection, the same way the teacher
// library's command-line tools spew.Dump negotiated session properties
// after a handshake. It is meant for logs and tests, never for the wire.
func DebugDump(v any) string {
	return spew.Sdump(v)
}
