package app

import (
	"fmt"
	"strconv"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はクリーンアップワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp は使い方を表示することを示す。
	CommandHelp Command = "help"
)

// usage は`livenex help`で表示する使い方。
const usage = `Usage: livenex <command>

Commands:
  serve                 APIサーバーを起動する（デフォルト）
  worker                期限切れセッション・未決済注文のクリーンアップを定期実行する
  migrate [up]          未適用のマイグレーションを全て適用する
  migrate down [N]      直近N個（デフォルト1）のマイグレーションを取り消す
  migrate version       現在のスキーマバージョンを表示する
  healthcheck           /health を呼び出して終了コードで結果を返す
  help                  この使い方を表示する
`

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "help", "-h", "--help":
		return CommandHelp
	default:
		return CommandServe
	}
}

// MigrateAction はmigrateサブコマンドの動作。
type MigrateAction struct {
	Down    bool
	Steps   int
	Version bool
}

// ParseMigrateArgs はmigrate以降の引数を解析する。
// argsにはmigrateの後ろの引数（例: ["down", "2"]）を渡す。
func ParseMigrateArgs(args []string) (MigrateAction, error) {
	if len(args) == 0 {
		return MigrateAction{}, nil
	}

	switch args[0] {
	case "up":
		return MigrateAction{}, nil
	case "version":
		return MigrateAction{Version: true}, nil
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return MigrateAction{}, fmt.Errorf("invalid migrate down steps: %q", args[1])
			}
			steps = n
		}
		return MigrateAction{Down: true, Steps: steps}, nil
	default:
		return MigrateAction{}, fmt.Errorf("unknown migrate action: %q", args[0])
	}
}
