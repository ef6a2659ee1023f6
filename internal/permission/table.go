package permission

const (
	ModuleReports = "reports"
	ModuleOther   = "other"
)

// reportPermissions are classified as reports before the module table is
// consulted, so "sale-report" does not land in sales.
var reportPermissions = []string{
	"profit-loss",
	"best-seller",
	"product-report",
	"daily-sale",
	"monthly-sale",
	"daily-purchase",
	"monthly-purchase",
	"sale-report",
	"payment-report",
	"purchase-report",
	"warehouse-report",
	"warehouse-stock-report",
	"product-qty-alert",
	"product-expiry-report",
	"dso-report",
	"user-report",
	"customer-report",
	"supplier-report",
	"biller-report",
	"due-report",
	"supplier-due-report",
}

type moduleEntry struct {
	module   string
	prefixes []string
	exact    map[string]struct{}
}

func entry(module string, prefixes []string, exact ...string) moduleEntry {
	set := make(map[string]struct{}, len(exact))
	for _, name := range exact {
		set[name] = struct{}{}
	}
	return moduleEntry{module: module, prefixes: prefixes, exact: set}
}

// moduleTable is matched top to bottom and the first hit wins. Entries must
// only ever be appended: moving one would reclassify stored permissions.
// "returns" sits above "purchases" so purchase-return-* stays a return.
var moduleTable = []moduleEntry{
	entry("returns", []string{"returns-", "purchase-return-"}),
	entry("products", []string{"products-", "product-", "categories-", "brands-"},
		"print_barcode", "adjustment", "stock_count"),
	entry("purchases", []string{"purchases-", "purchase-"}),
	entry("sales", []string{"sales-", "sale-"},
		"pos", "gift_card", "coupon", "delivery", "packing_slip_challan"),
	entry("quotations", []string{"quotes-"}),
	entry("transfers", []string{"transfers-"}),
	entry("expenses", []string{"expenses-", "expense-"}),
	entry("accounts", []string{"account-", "accounts-"},
		"money-transfer", "balance-sheet", "account-statement"),
	entry("people", []string{"customers-", "suppliers-", "billers-", "users-", "customer-group-"}),
	entry("hrm", []string{"employees-", "payroll-", "attendance-"},
		"department", "holiday", "shift", "hrm-panel"),
	entry("settings", []string{"units-", "role-", "warehouses-", "taxes-", "currencies-"},
		"general_setting", "mail_setting", "sms_setting", "pos_setting", "hrm_setting",
		"reward_point_setting", "create_sms", "backup_database", "send_notification",
		"discount_plan", "discount", "custom_field", "invoice_setting",
		"payment_gateway_setting", "barcode_setting"),
	entry("woocommerce", []string{"woocommerce-"}),
}

const (
	AdminRole = "Admin"
	BasicRole = "Staff"
)

func crud(resource string, actions ...string) []string {
	if len(actions) == 0 {
		actions = []string{"index", "add", "edit", "delete"}
	}
	names := make([]string, 0, len(actions))
	for _, action := range actions {
		names = append(names, resource+"-"+action)
	}
	return names
}

// catalog is the canonical permission list in seeding order.
var catalog = concat(
	crud("products"),
	crud("categories"),
	crud("brands"),
	[]string{"product-import", "print_barcode", "adjustment", "stock_count"},
	crud("purchases"),
	crud("purchase-payment", "index", "create", "edit", "delete"),
	crud("purchase-return"),
	crud("sales"),
	crud("sale-payment", "index", "create", "edit", "delete"),
	[]string{"pos", "gift_card", "coupon", "delivery", "packing_slip_challan"},
	crud("returns"),
	crud("quotes"),
	crud("transfers"),
	crud("expenses"),
	crud("expense-category"),
	crud("account", "index", "add", "edit", "delete"),
	[]string{"money-transfer", "balance-sheet", "account-statement"},
	crud("customers"),
	crud("customer-group"),
	crud("suppliers"),
	crud("billers"),
	crud("users"),
	crud("employees"),
	crud("payroll"),
	crud("attendance"),
	[]string{"department", "holiday", "shift", "hrm-panel"},
	crud("units"),
	crud("role"),
	crud("warehouses"),
	crud("taxes"),
	crud("currencies"),
	[]string{
		"general_setting", "mail_setting", "sms_setting", "pos_setting", "hrm_setting",
		"reward_point_setting", "create_sms", "backup_database", "send_notification",
		"discount_plan", "discount", "custom_field", "invoice_setting",
		"payment_gateway_setting", "barcode_setting",
	},
	crud("woocommerce", "index", "sync", "settings"),
	reportPermissions,
)

// basicPermissions is what the restricted role gets in multi-tenant deployments.
var basicPermissions = []string{
	"products-index",
	"sales-index",
	"sales-add",
	"pos",
	"sale-payment-index",
	"sale-payment-create",
	"returns-index",
	"returns-add",
	"quotes-index",
	"quotes-add",
	"customers-index",
	"customers-add",
	"daily-sale",
	"product-qty-alert",
}

func concat(lists ...[]string) []string {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	out := make([]string, 0, total)
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
