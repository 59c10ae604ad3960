// Package all registers every built-in storage backend. Import it for side
// effects:
//
//	import _ "github.com/amirmursal/medinet-process-data/internal/storage/all"
package all

import (
	_ "github.com/amirmursal/medinet-process-data/internal/storage/memory"
	_ "github.com/amirmursal/medinet-process-data/internal/storage/mongo"
	_ "github.com/amirmursal/medinet-process-data/internal/storage/mssql"
	_ "github.com/amirmursal/medinet-process-data/internal/storage/mysql"
	_ "github.com/amirmursal/medinet-process-data/internal/storage/postgres"
	_ "github.com/amirmursal/medinet-process-data/internal/storage/sqlite"
)
