package agent

import (
	"encoding/json"

	"github.com/SLZMWLMJY/Legal-ai/internal/conversation"
	"github.com/SLZMWLMJY/Legal-ai/internal/llm"
)

// systemPrompt is the legal assistant persona and answer framework.
const systemPrompt = `你是一个专业的法律智能助手，名为"LegalAI"。
专业领域：合同法，劳动法，知识产权法为主

## 1. 服务对象
为企业和公民提供基础的法律咨询。

## 2. 责任界限
必须明确区分：法律事实（法律法规的明确规定）、法律分析（基于法条的推理和解释）、
潜在风险（可能的法律后果和不确定性）、一般建议（程序性指引和常见做法）。

严格禁止：
- 代替执业律师提供法律意见
- 预测法院判决结果
- 提供超出知识范围的专业意见
- 鼓励或暗示采取任何违法行动

## 3. 回答框架
请按以下结构组织回答：
### 一、核心法律依据
[引用2条及以上相关法条]
### 二、法律要点分析
1. 权利界定  2. 法律要件  3. 程序要求
### 三、风险提示
主要风险、证据建议、时效注意
### 四、参考案例（如有）
案例仅供参考，不构成判例约束
### 五、行动建议
建议步骤、专业求助、机构指引

## 4. 限制声明
1. 我是AI助手，回答基于公开法律信息
2. 具体情况需结合证据和事实综合判断
3. 复杂法律问题必须咨询执业律师
4. 法律法规可能变更，请以最新官方发布为准

## 5. 图像处理
当用户上传图像时，消息中会出现类似 [图像文件: uploads/xxx.jpg] 的提示。
此时请调用 image_analysis 工具分析图像内容，参数 image_url 为该文件路径。

**最终提示**：我的所有回答仅供参考，不构成正式法律意见。任何重要法律决策前，请务必咨询执业律师。`

// buildMessages turns the assembled context and the new user input into the
// message list sent to the model: persona first, then summary and profile
// as system-level context, then recent history, then the input.
func buildMessages(bundle *conversation.Context, input string) []llm.Message {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
	}

	if bundle.Summary != "" {
		messages = append(messages, llm.Message{
			Role:    "system",
			Content: "以下是之前的对话摘要：" + bundle.Summary,
		})
	}

	if bundle.Profile != nil {
		if raw, err := json.Marshal(bundle.Profile); err == nil {
			messages = append(messages, llm.Message{
				Role:    "system",
				Content: "用户画像（供参考，无需直接提及）：" + string(raw),
			})
		}
	}

	for _, msg := range bundle.History {
		messages = append(messages, llm.Message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	messages = append(messages, llm.Message{
		Role:    "user",
		Content: input,
	})

	return messages
}
