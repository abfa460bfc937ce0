package structure

// Keyword clusters used by the non-vocabulary extraction strategies. Like the
// fallback labels, these encode regulatory-domain taxonomy; keep edits in
// sync with the vocabulary owners.

// deviceIssueClusters groups device-problem keywords by issue type. The
// device_issue field collects the first hit from each cluster.
var deviceIssueClusters = []struct {
	name     string
	keywords []string
}{
	{"display", []string{"黑屏", "无显示", "屏幕", "显示", "花屏", "闪烁"}},
	{"power", []string{"断电", "关机", "重启", "电池", "电源", "无法开机"}},
	{"alarm", []string{"报警", "警报", "误报", "无报警", "报警器", "蜂鸣"}},
	{"measurement", []string{"测量", "数值", "数据", "读数", "不准", "误差"}},
	{"connection", []string{"连接", "断连", "信号", "传输", "通信", "网络"}},
}

// failureModeRules maps narrative keywords to a fallback failure-mode label
// when no vocabulary term clears the threshold.
type failureModeRule struct {
	keywords []string
	label    func(FallbackLabels) string
}

var failureModeRules = []failureModeRule{
	{[]string{"黑屏", "无显示"}, func(f FallbackLabels) string { return f.DisplayFault }},
	{[]string{"报警", "误报"}, func(f FallbackLabels) string { return f.AlarmFault }},
	{[]string{"测量", "不准"}, func(f FallbackLabels) string { return f.MeasurementFault }},
}

// clinicalClusters groups symptom keywords by system. A hit yields
// "<keyword>异常" when no vocabulary term matched.
var clinicalClusters = []struct {
	name     string
	keywords []string
}{
	{"cardiac", []string{"心律", "心跳", "心脏", "心电", "血压", "脉搏"}},
	{"respiratory", []string{"呼吸", "氧气", "通气", "窒息", "呼吸困难"}},
	{"neurological", []string{"意识", "昏迷", "抽搐", "痉挛", "神经"}},
	{"general", []string{"疼痛", "不适", "发热", "寒战", "恶心"}},
}

// actionKeywords are scanned in order when no verbatim action text exists.
var actionKeywords = []string{
	"更换", "替换", "换新", "备用", "替代",
	"维修", "修理", "修复", "检修", "维护",
	"监护", "观察", "监测", "检查", "评估",
	"治疗", "用药", "手术", "抢救", "急救",
	"转科", "转院", "ICU", "重症监护", "急诊",
}
