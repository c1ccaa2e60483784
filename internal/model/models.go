package model

// Models lists every table the service migrates
func Models() []interface{} {
	return []interface{}{
		&Tenant{},
		&Role{},
		&Actor{},
		&Branch{},
		&ManagerAssignment{},
		&Employee{},
		&AuditLog{},
	}
}
