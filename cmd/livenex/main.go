// Command livenex はライブ配信アクセス制御APIのサーバー・ワーカー・マイグレーションを起動する。
//
//	livenex serve        APIサーバー（デフォルト）
//	livenex worker       クリーンアップワーカー
//	livenex migrate      DBマイグレーション
//	livenex healthcheck  Dockerヘルスチェック
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/livenex/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "livenex: %v\n", err)
		os.Exit(1)
	}
}
