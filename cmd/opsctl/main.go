// opsctl 运维面板的本地管理工具：迁移、用户、审计查询与服务状态缓存
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
