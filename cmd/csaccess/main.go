// Command csaccess は学習プラットフォームのAPIサーバー・ワーカー・マイグレーションを起動する。
//
//	csaccess [serve]                   APIサーバー（デフォルト）
//	csaccess worker                    期限切れセッションのクリーンアップ
//	csaccess migrate [up|down N|version]
//	csaccess healthcheck               Dockerヘルスチェック用
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/csaccess/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "csaccess: %v\n", err)
		os.Exit(1)
	}
}
