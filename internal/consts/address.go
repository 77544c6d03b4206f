package consts

// Base58 地址常量
const (
	SystemProgramStr          = "11111111111111111111111111111111"
	TokenProgramStr           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	TokenProgram2022Str       = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	AssociatedTokenProgramStr = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	ComputeBudgetProgramIdStr = "ComputeBudget111111111111111111111111111111"
)

// NativePrograms 非 Anchor 程序，出现在 inner 白名单中也不会被解码
var NativePrograms = map[string]struct{}{
	SystemProgramStr:          {},
	TokenProgramStr:           {},
	TokenProgram2022Str:       {},
	AssociatedTokenProgramStr: {},
	ComputeBudgetProgramIdStr: {},
}
