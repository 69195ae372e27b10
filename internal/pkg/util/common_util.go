package util

// PtrString 用于将 string 转换为 *string
func PtrString(s string) *string {
	return &s
}

// PtrFloat64 用于将 float64 转换为 *float64
func PtrFloat64(f float64) *float64 {
	return &f
}
