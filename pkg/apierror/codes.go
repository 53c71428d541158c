package apierror

// 虚拟桌面编排服务的预定义错误
var (
	// ErrNotFound 请求的资源不存在，或者不属于当前用户
	ErrNotFound = &Error{
		Code:       "NotFound",
		Message:    "The requested resource does not exist or does not belong to the caller.",
		HTTPStatus: 404,
	}

	// ErrVMConflict 用户在同一桌面类型下已存在未结束的虚拟机
	ErrVMConflict = &Error{
		Code:       "VMConflict",
		Message:    "A desktop VM for this user and desktop type already exists.",
		HTTPStatus: 409,
	}

	// ErrInvalidParameter 请求参数不合法
	ErrInvalidParameter = &Error{
		Code:       "InvalidParameter",
		Message:    "A parameter in the request is invalid or malformed.",
		HTTPStatus: 400,
	}

	// ErrCloudError 云平台请求失败（请求格式错误或属性组合非法）
	ErrCloudError = &Error{
		Code:       "CloudError",
		Message:    "The cloud provider rejected the request.",
		HTTPStatus: 502,
	}

	// ErrTimeout 云端操作超过允许的等待时间
	ErrTimeout = &Error{
		Code:       "Timeout",
		Message:    "The cloud operation did not converge within the allowed time.",
		HTTPStatus: 504,
	}

	// ErrInternalError 服务内部错误
	ErrInternalError = &Error{
		Code:       "InternalError",
		Message:    "An internal error has occurred. Retry your request; if the problem persists, contact the operators.",
		HTTPStatus: 500,
	}
)
