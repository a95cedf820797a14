// Siodb is a SQL database server split into two cooperating processes: the
// front-end connection server (cmd/siodb) and the back-end IO manager
// (cmd/iomgr). The IO manager owns the database engine; its catalog and
// metadata subsystem lives under iomgr/dbengine.
package siodb
