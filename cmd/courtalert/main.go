// courtalert はテニスコート空き状況アラートのAPIサーバーおよびワーカー。
//
// サブコマンド:
//
//	serve       APIサーバーを起動する（デフォルト）
//	worker      ディスパッチスケジューラを起動する
//	migrate     データベースマイグレーションを実行する
//	healthcheck /healthエンドポイントを確認する（Dockerヘルスチェック用）
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/courtalert/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
