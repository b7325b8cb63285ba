package app

import (
	"fmt"
	"strconv"
)

// Command はサブコマンド名。
type Command string

const (
	CommandServe   Command = "serve"
	CommandWorker  Command = "worker"
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistrolessイメージのHEALTHCHECKから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[Command]struct{}{
	CommandServe:       {},
	CommandWorker:      {},
	CommandMigrate:     {},
	CommandHealthcheck: {},
}

// ParseCommand は先頭の引数をサブコマンドとして解釈し、残りの引数と共に返す。
// 引数が無ければserve。未知のサブコマンドはエラー。
func ParseCommand(args []string) (Command, []string, error) {
	if len(args) == 0 {
		return CommandServe, nil, nil
	}
	cmd := Command(args[0])
	if _, ok := knownCommands[cmd]; !ok {
		return "", nil, fmt.Errorf("unknown command %q (serve, worker, migrate, healthcheck)", args[0])
	}
	return cmd, args[1:], nil
}

// migratePlan はmigrateサブコマンドの実行内容。
// Down と Status がともに false なら未適用分をすべて適用する。
type migratePlan struct {
	Down   bool
	Steps  int
	Status bool
}

// parseMigrateArgs は "migrate [up]"、"migrate down [steps]"、"migrate status" の引数を解釈する。
func parseMigrateArgs(args []string) (migratePlan, error) {
	if len(args) == 1 && args[0] == "status" {
		return migratePlan{Status: true}, nil
	}
	if len(args) == 0 || args[0] == "up" {
		if len(args) > 1 {
			return migratePlan{}, fmt.Errorf("unexpected migrate arguments: %v", args[1:])
		}
		return migratePlan{}, nil
	}
	if args[0] != "down" {
		return migratePlan{}, fmt.Errorf("unknown migrate direction %q", args[0])
	}
	if len(args) == 1 {
		return migratePlan{Down: true, Steps: 1}, nil
	}
	steps, err := strconv.Atoi(args[1])
	if err != nil || steps <= 0 {
		return migratePlan{}, fmt.Errorf("invalid rollback steps: %q", args[1])
	}
	return migratePlan{Down: true, Steps: steps}, nil
}
