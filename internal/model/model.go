package model

type AppKind string

type StoreKind string

const (
	AppName = "assetkeeper"

	AppKindService AppKind = "service"
	AppKindClient  AppKind = "client"

	StoreKindMemory   StoreKind = "memory"
	StoreKindSQLite   StoreKind = "sqlite"
	StoreKindPostgres StoreKind = "postgres"

	LogLevelInfo  = 0
	LogLevelDebug = 1
	LogLevelTrace = 2

	// RootController is the default name of the primary rack controller,
	// this asset is never removed.
	RootController = "rackcontroller-0"
)

// AppKinds returns the supported assetkeeper app kinds
func AppKinds() []AppKind { return []AppKind{AppKindService, AppKindClient} }

// StoreKinds returns the supported asset store kinds
func StoreKinds() []StoreKind {
	return []StoreKind{StoreKindMemory, StoreKindSQLite, StoreKindPostgres}
}
