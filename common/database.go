package common

// Database dialect flags, set once by model.InitDB before any worker starts.
var (
	UsingSQLite     = false
	UsingPostgreSQL = false
	UsingMySQL      = false
)
