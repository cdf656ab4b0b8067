// Package all registers every storage backend. Import for side effects:
//
//	import _ "github.com/M21ATS/ProductTrack-Pro/internal/store/all"
package all

import (
	_ "github.com/M21ATS/ProductTrack-Pro/internal/store/mssql"
	_ "github.com/M21ATS/ProductTrack-Pro/internal/store/postgres"
	_ "github.com/M21ATS/ProductTrack-Pro/internal/store/sqlite"
)
