//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const reportsDir = "./reports"

// Default 默认任务：显示帮助信息
func Default() {
	fmt.Println("portalcache 构建系统")
	fmt.Println("====================")
	fmt.Println("可用任务:")
	fmt.Println("  mage build       - 构建 portalcache 二进制文件")
	fmt.Println("  mage test        - 运行所有测试")
	fmt.Println("  mage testRace    - 使用 -race 运行测试")
	fmt.Println("  mage coverage    - 生成测试覆盖率报告")
	fmt.Println("  mage lint        - 运行代码检查")
	fmt.Println("  mage clean       - 清理构建产物")
}

// Build 构建 portalcache 二进制文件
func Build() error {
	mg.Deps(Clean)

	fmt.Println("📦 构建 portalcache...")
	output := filepath.Join("./dist", "portalcache")
	if runtime.GOOS == "windows" {
		output += ".exe"
	}

	cmd := exec.Command("go", "build", "-o", output, "./cmd/portalcache")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("构建 portalcache 失败: %v\n输出: %s", err, string(out))
	}

	if info, err := os.Stat(output); err == nil {
		fmt.Printf("   ✅ portalcache: %d MB\n", info.Size()/1024/1024)
	}
	return nil
}

// Test 运行所有测试
func Test() error {
	fmt.Println("🧪 运行测试...")

	cmd := exec.Command("go", "test", "./...", "-timeout=5m")
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	if err != nil {
		fmt.Printf("测试失败输出:\n%s\n", string(output))
		return fmt.Errorf("测试失败: %v", err)
	}

	fmt.Println("✅ 测试通过!")
	return nil
}

// TestRace 使用竞态检测运行测试，缓存并发测试依赖它
func TestRace() error {
	fmt.Println("🏁 运行竞态检测测试...")

	cmd := exec.Command("go", "test", "-race", "./pkg/...", "-timeout=10m")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=1")

	if output, err := cmd.CombinedOutput(); err != nil {
		fmt.Printf("竞态检测输出:\n%s\n", string(output))
		return fmt.Errorf("竞态检测失败: %v", err)
	}

	fmt.Println("✅ 未发现数据竞争!")
	return nil
}

// Clean 清理构建产物
func Clean() error {
	fmt.Println("🧹 清理构建产物...")

	if err := os.MkdirAll("./dist", 0755); err != nil {
		return fmt.Errorf("创建 dist 目录失败: %v", err)
	}

	files, err := filepath.Glob("./dist/*")
	if err != nil {
		return fmt.Errorf("查找文件失败: %v", err)
	}
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			fmt.Printf("警告: 无法删除文件 %s: %v\n", file, err)
		}
	}

	if err := os.RemoveAll(reportsDir); err != nil {
		fmt.Printf("警告: 清理报告目录失败: %v\n", err)
	}

	fmt.Println("✅ 清理完成!")
	return nil
}

// Lint 检查代码格式并运行 go vet
func Lint() error {
	fmt.Println("🔍 运行代码检查...")

	output, err := sh.Output("gofmt", "-l", ".")
	if err != nil {
		return fmt.Errorf("gofmt 检查失败: %v", err)
	}
	if strings.TrimSpace(output) != "" {
		return fmt.Errorf("以下文件需要格式化:\n%s", output)
	}

	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return fmt.Errorf("go vet 失败: %v", err)
	}

	fmt.Println("✅ 代码检查通过!")
	return nil
}

// Coverage 生成测试覆盖率报告
func Coverage() error {
	fmt.Println("📈 生成测试覆盖率报告...")

	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %v", err)
	}

	profile := filepath.Join(reportsDir, "coverage.out")
	html := filepath.Join(reportsDir, "coverage.html")

	cmd := exec.Command("go", "test", "./pkg/...", "-coverprofile="+profile, "-covermode=atomic")
	if output, err := cmd.CombinedOutput(); err != nil {
		fmt.Printf("测试输出:\n%s\n", string(output))
		return fmt.Errorf("生成覆盖率失败: %v", err)
	}

	if err := sh.Run("go", "tool", "cover", "-html="+profile, "-o", html); err != nil {
		return fmt.Errorf("生成HTML报告失败: %v", err)
	}
	if err := sh.RunV("go", "tool", "cover", "-func="+profile); err != nil {
		return fmt.Errorf("显示覆盖率失败: %v", err)
	}

	abs, err := filepath.Abs(html)
	if err != nil {
		abs = html
	}
	fmt.Println("✅ 覆盖率报告生成完成!")
	fmt.Println("   详细报告: file://" + abs)
	return nil
}
