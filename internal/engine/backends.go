package engine

// The host device is always linked in.
import _ "github.com/born-ml/gpubcast/internal/backend/host"
