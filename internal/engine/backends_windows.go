//go:build windows

package engine

import _ "github.com/born-ml/gpubcast/internal/backend/webgpu"
