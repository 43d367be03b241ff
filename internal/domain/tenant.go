package domain

// TenantSettings is the subset of per-tenant settings the email pipeline
// consumes. The platform table carries many more columns; they are neither
// read nor written here.
type TenantSettings struct {
	TenantID            int64   `json:"tenant_id" db:"tenant_id"`
	EmailHeaderImageURL *string `json:"email_header_image_url" db:"email_header_image_url"`
	EmailFooterHTMLURL  *string `json:"email_footer_html_url" db:"email_footer_html_url"`
	LogoImageURL        *string `json:"logo_image_url" db:"logo_image_url"`
}

// TenantEmailType labels the purpose of a tenant email address. The platform
// historically grew two overlapping enumerations; this is their union. Only
// CONTACT is consumed by this service.
type TenantEmailType string

const (
	TenantEmailContact   TenantEmailType = "CONTACT"
	TenantEmailPromotion TenantEmailType = "PROMOTION"
	TenantEmailGeneral   TenantEmailType = "GENERAL"
	TenantEmailInfo      TenantEmailType = "INFO"
	TenantEmailSales     TenantEmailType = "SALES"
	TenantEmailTickets   TenantEmailType = "TICKETS"
	TenantEmailSupport   TenantEmailType = "SUPPORT"
	TenantEmailMarketing TenantEmailType = "MARKETING"
	TenantEmailNoReply   TenantEmailType = "NOREPLY"
	TenantEmailAdmin     TenantEmailType = "ADMIN"
)

// TenantEmail is one typed email address belonging to a tenant.
type TenantEmail struct {
	TenantID     int64           `json:"tenant_id" db:"tenant_id"`
	EmailType    TenantEmailType `json:"email_type" db:"email_type"`
	EmailAddress string          `json:"email_address" db:"email_address"`
}
