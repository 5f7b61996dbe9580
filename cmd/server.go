package cmd

import (
	"MiniMixLab/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动编排引擎服务器",
	Long:  `启动 MiniMixLab 编排引擎的HTTP服务器，提供源管理、时间线编辑、对齐与渲染API`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
