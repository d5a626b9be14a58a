//go:build linux

package engine

import _ "github.com/born-ml/gpubcast/internal/backend/cuda"
