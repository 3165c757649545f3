package auth

// Claims representa la información extraída del token.
type Claims struct {
	UserID string
	Email  string

	// TenantID es la clínica a la que pertenece la sesión.
	TenantID string
}
