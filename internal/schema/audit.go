package schema

// AuditTableSuffix is appended to a table name to form its audit table name.
const AuditTableSuffix = "_audit"

// Audit table column names. The layout is fixed and generated; callers never
// declare audit tables themselves.
const (
	AuditColID            = "audit_id"
	AuditColRecordID      = "record_id"
	AuditColTenantID      = "tenant_id"
	AuditColFieldName     = "field_name"
	AuditColOldValue      = "old_value"
	AuditColNewValue      = "new_value"
	AuditColOperation     = "operation"
	AuditColChangedAt     = "changed_at"
	AuditColChangedBy     = "changed_by"
	AuditColTransactionID = "transaction_id"
	AuditColMetadata      = "metadata"
)

// Audit operation discriminators.
const (
	AuditOpInsert = "insert"
	AuditOpUpdate = "update"
	AuditOpDelete = "delete"
)

// AuditTableFor synthesizes the audit TableDef for a copy_on_change table:
// one row per changed field per mutation, append-only, never updated.
func AuditTableFor(t *TableDef) *TableDef {
	name := t.Name + AuditTableSuffix

	cols := []*ColumnDef{
		{Name: AuditColID, Type: TypeUUID, PrimaryKey: true},
		{Name: AuditColRecordID, Type: TypeUUID},
	}
	if t.MultiTenant {
		cols = append(cols, &ColumnDef{Name: AuditColTenantID, Type: TypeUUID})
	}
	cols = append(cols,
		&ColumnDef{Name: AuditColFieldName, Type: TypeString, MaxLength: 255},
		&ColumnDef{Name: AuditColOldValue, Type: TypeJSON, Nullable: true},
		&ColumnDef{Name: AuditColNewValue, Type: TypeJSON, Nullable: true},
		&ColumnDef{Name: AuditColOperation, Type: TypeString, MaxLength: 16},
		&ColumnDef{Name: AuditColChangedAt, Type: TypeTimestamp, Default: "now()"},
		&ColumnDef{Name: AuditColChangedBy, Type: TypeString, MaxLength: 255, Nullable: true},
		&ColumnDef{Name: AuditColTransactionID, Type: TypeUUID, Nullable: true},
		&ColumnDef{Name: AuditColMetadata, Type: TypeJSON, Nullable: true},
	)

	idxs := []*IndexDef{
		{Name: "idx_" + name + "_changed_at", Columns: []string{AuditColChangedAt}},
		{Name: "idx_" + name + "_record_field", Columns: []string{AuditColRecordID, AuditColFieldName}},
	}
	if t.MultiTenant {
		idxs = append(idxs, &IndexDef{
			Name:    "idx_" + name + "_tenant",
			Columns: []string{AuditColTenantID},
		})
	}

	return &TableDef{
		Schema:   t.Schema,
		Name:     name,
		Columns:  cols,
		Indexes:  idxs,
		Strategy: StrategyNone,
	}
}
