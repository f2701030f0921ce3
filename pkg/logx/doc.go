// Package logx configures remindbot's structured logging.
//
// logx.Logger is a small value type on top of zerolog:
//   - console output stays readable (short timestamp + file:line caller)
//   - the optional file sink is JSON lines
//   - the optional Telegram sink forwards warnings to an ops chat,
//     rate limited so a failure loop cannot flood it
package logx
