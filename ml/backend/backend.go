// backend.go - Registriert alle einkompilierten Backends
package backend

import (
	_ "github.com/7blacky7/nmt/ml/backend/cpu"
)
