package audio

import (
	"github.com/justa-cai/go-libopus/opus"
)

// 120ms at 48kHz，每通道
const maxOpusFrameSize = 5760

// OpusCodec 实现Opus编解码
type OpusCodec struct {
	encoder  *opus.OpusEncoder
	decoder  *opus.OpusDecoder
	channels int
	buffer   []byte
}

// NewOpusCodec 创建新的Opus编解码器
func NewOpusCodec(sampleRate, channelCount int) (*OpusCodec, error) {
	encoder, err := opus.NewEncoder(sampleRate, channelCount, opus.OpusApplicationAudio)
	if err != nil {
		return nil, err
	}

	decoder, err := opus.NewDecoder(sampleRate, channelCount)
	if err != nil {
		encoder.Close()
		return nil, err
	}

	return &OpusCodec{
		encoder:  encoder,
		decoder:  decoder,
		channels: channelCount,
		buffer:   make([]byte, 4000), // libopus 建议的最大包长
	}, nil
}

// Encode 将一帧PCM数据编码为Opus包
func (c *OpusCodec) Encode(pcmData []int16) ([]byte, error) {
	input := make([]byte, len(pcmData)*2)
	for i, v := range pcmData {
		input[2*i] = byte(v)
		input[2*i+1] = byte(v >> 8)
	}
	n, err := c.encoder.Encode(input, c.buffer)
	if err != nil {
		return nil, err
	}
	result := make([]byte, n)
	copy(result, c.buffer[:n])
	return result, nil
}

// Decode 将Opus包解码到 pcmData，返回写入的采样数（含所有通道）
func (c *OpusCodec) Decode(opusData []byte, pcmData []int16) (int, error) {
	output := make([]byte, len(pcmData)*2)
	perChannel, err := c.decoder.Decode(opusData, output)
	if err != nil {
		return 0, err
	}
	total := perChannel * c.channels
	if total > len(pcmData) {
		total = len(pcmData)
	}
	for i := 0; i < total; i++ {
		pcmData[i] = int16(output[2*i]) | int16(output[2*i+1])<<8
	}
	return total, nil
}

// Close 关闭编解码器并释放资源
func (c *OpusCodec) Close() {
	if c.encoder != nil {
		c.encoder.Close()
		c.encoder = nil
	}
	if c.decoder != nil {
		c.decoder.Close()
		c.decoder = nil
	}
}
