package audit

// Category 审计动作分类（封闭枚举）
type Category string

// 认证与账户事件
const (
	CategoryLogin         Category = "LOGIN"
	CategoryLoginFailed   Category = "LOGIN_FAILED"
	CategoryLogout        Category = "LOGOUT"
	CategoryProfileUpdate Category = "PROFILE_UPDATE"
	CategoryUserCreated   Category = "USER_CREATED"
	CategoryUserModified  Category = "USER_MODIFIED"
	CategoryUserDeleted   Category = "USER_DELETED"
)

// 特权操作事件
const (
	CategoryCommandExecution Category = "COMMAND_EXECUTION"
	CategoryTerminalCommand  Category = "TERMINAL_COMMAND"
	CategoryServiceControl   Category = "SERVICE_CONTROL"
)

var categories = map[Category]struct{}{
	CategoryLogin:            {},
	CategoryLoginFailed:      {},
	CategoryLogout:           {},
	CategoryProfileUpdate:    {},
	CategoryUserCreated:      {},
	CategoryUserModified:     {},
	CategoryUserDeleted:      {},
	CategoryCommandExecution: {},
	CategoryTerminalCommand:  {},
	CategoryServiceControl:   {},
}

// Valid 是否为已知分类
func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

// AllCategories 返回全部分类，用于查询过滤校验
func AllCategories() []Category {
	return []Category{
		CategoryLogin, CategoryLoginFailed, CategoryLogout, CategoryProfileUpdate,
		CategoryUserCreated, CategoryUserModified, CategoryUserDeleted,
		CategoryCommandExecution, CategoryTerminalCommand, CategoryServiceControl,
	}
}
