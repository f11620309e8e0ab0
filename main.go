// @title Skillset 测评与进阶 API
// @version 1.0
// @description 学校技能测评：每周限测、自动评分、报告生成与教师解锁。

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"os"

	"skillset_backend/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
